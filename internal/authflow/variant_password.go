// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build !passwordless

package authflow

// DefaultVariant is the sign-in flow compiled into this build.
const DefaultVariant = VariantPassword
