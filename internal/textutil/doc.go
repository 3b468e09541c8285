// Package textutil provides text processing utilities for script handling.
//
// The primary use case is measuring lexical divergence between a reference
// advertisement script and a generated rewording, so the pipeline can
// reject variants that stray beyond the configured threshold. Divergence is
// the token-level edit distance normalized by the longer script's length:
// 0 means identical wording, 1 means nothing shared.
package textutil
