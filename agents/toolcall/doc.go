/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package toolcall defines the tools an agent session exposes to the model.
//
// Tools are defined once, provider-independently, and converted to SDK
// types by the claudetool and googletool subpackages. Tool sets compose by
// wrapping providers:
//
//	provider := toolcall.NewSearchToolsProvider(
//		toolcall.NewStagingToolsProvider(
//			toolcall.NewRepositoryToolsProvider(toolcall.NewEmptyToolsProvider())))
//
//	tools := provider.Tools(toolcall.NewSearchTools(
//		toolcall.NewStagingTools(
//			toolcall.NewRepositoryTools(toolcall.EmptyTools{}, repoCallbacks),
//			stagingCallbacks),
//		searchCallbacks))
//
// Handlers return a JSON-serializable result or an error. Errors are
// classified with agenterr and reported to the model as failed results.
package toolcall
