/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package params extracts typed tool arguments from the loosely typed maps
// model providers deliver.
package params
