/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package credentials issues installation-scoped access tokens for a
GitHub App.

MintAssertion signs a ten minute RS256 assertion with the app's private
key. A Provider exchanges assertions for installation credentials, caches
them until they come within a safety margin of expiry, and collapses
concurrent refreshes for the same installation into one exchange.

	key, err := credentials.ParsePrivateKey(pemBytes)
	if err != nil {
		return err
	}
	p, err := credentials.NewProvider(appID, key)
	if err != nil {
		return err
	}
	ts := p.TokenSource(ctx, installationID)

Exchange failures are reported as agenterr.KindCredentialUnavailable.
*/
package credentials
