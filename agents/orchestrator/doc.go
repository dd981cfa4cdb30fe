/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package orchestrator runs the step-bounded tool-calling loop that lets a
model drive repository tools, and multiplexes everything it does onto one
ordered stream of frames.

Each step sends the conversation to the model. Text deltas are emitted as
text-delta frames while the model streams. Every requested call is emitted
as a tool-call frame, resolved by its handler, and emitted as a tool-result
frame in call order. A handler error becomes a failed result the model can
see and react to; only credential and configuration failures end the
session. The stream ends with exactly one of done, budget-exhausted or
error.

	o, err := orchestrator.New(model, tools,
		orchestrator.WithMaxSteps(60),
		orchestrator.WithSystemPrompt(system),
	)
	if err != nil {
		return err
	}
	res, err := o.Run(ctx, history, orchestrator.NewNDJSONWriter(w))

Cancellation is observed between steps. Tool calls of one step run
sequentially unless WithConcurrentTools is given.
*/
package orchestrator
