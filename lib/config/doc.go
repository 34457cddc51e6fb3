// Copyright 2026 The Ktrace Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for ktrace.
//
// Configuration is loaded from a single file specified by either the
// KTRACE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no fallbacks and no automatic file
// search; when no file is named, [Default] values apply. Command-line
// flags always override file values.
//
// The file only carries capture defaults and the tracefs root
// override -- everything the kernel does not already decide.
package config
