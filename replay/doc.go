// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package replay opens replay archives and decodes their contents.
//
// A replay is an archive whose user data holds a versioned header. The header
// names the game build that wrote the replay, which selects the Protocol used
// to decode the archive's other files.
//
// Decoding a single replay is sequential. Replays can be decoded in parallel,
// one per worker, using Config.OpenAll.
package replay
