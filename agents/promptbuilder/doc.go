/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package promptbuilder builds model prompts from literal templates.

Templates contain {{name}} placeholders and must be string constants.
Request data is bound through an encoder (JSON or YAML), and substitution
happens in one pass, so data can never introduce new placeholders.

	p := promptbuilder.Must(promptbuilder.NewPrompt(`Context:
	{{context}}`))
	p, err := p.BindYAML("context", session)
	if err != nil {
		return err
	}
	text, err := p.Build()

SystemPrompt renders the agent's system instructions for a Session.
*/
package promptbuilder
