package rehearsal_test

import (
	"context"
	"fmt"

	"github.com/aretw0/rehearsal"
	"github.com/aretw0/rehearsal/pkg/action"
	"github.com/aretw0/rehearsal/pkg/container"
)

func ExampleEngine_Run() {
	engine, err := rehearsal.New(rehearsal.WithGlobalVariable("greeting", "hello"))
	if err != nil {
		panic(err)
	}
	inbox := engine.DirectEndpoint("inbox")

	receive, err := action.NewReceive(inbox, action.ExpectPayload("hello world"))
	if err != nil {
		panic(err)
	}
	result, err := engine.Run(context.Background(), "greeting", []action.Builder{
		action.Of(action.Send{Endpoint: inbox, Payload: "${greeting} world"}),
		action.Of(receive),
	})
	if err != nil {
		panic(err)
	}
	fmt.Println(result.TestName, result.Outcome)
	// Output: greeting SUCCESS
}

func ExampleEngine_Run_failure() {
	engine, err := rehearsal.New()
	if err != nil {
		panic(err)
	}

	loop, err := container.NewIterate("i <= 3", action.All(
		action.Fail{Message: "attempt ${i} rejected"},
	))
	if err != nil {
		panic(err)
	}
	result, _ := engine.Run(context.Background(), "rejected", []action.Builder{action.Of(loop)})
	fmt.Println(result.Outcome, result.FailedAction)
	// Output: FAILURE fail
}
