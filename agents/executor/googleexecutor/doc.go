/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googleexecutor implements executor.Model with the Gemini API.
//
// Gemini does not always assign function call ids, so calls without one get
// a generated id that is echoed back on the matching function response.
// A response that ends in a malformed function call is sent back once with
// the list of available functions.
//
//	client, err := genai.NewClient(ctx, &genai.ClientConfig{
//	    APIKey:  apiKey,
//	    Backend: genai.BackendGeminiAPI,
//	})
//	if err != nil {
//	    return err
//	}
//	model, err := googleexecutor.New(client, googleexecutor.WithModel("gemini-2.5-pro"))
package googleexecutor
