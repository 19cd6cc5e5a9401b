// Package deb provides a pure Go library for inspecting Debian package artifacts.
//
// # Design Philosophy
//
// The package reads artifacts directly, without calling 'dpkg' or any other
// system tool, which makes it usable in CI/CD pipelines, containers and on
// non-Debian hosts. Nothing is ever installed, built or executed: the
// package only reads metadata, validates it and compares versions.
//
// # Features
//
// Binary packages (.deb):
//   - Extract the control file from control.tar.gz, control.tar.xz,
//     control.tar.zst or control.tar members.
//   - Parse control headers, normalizing Latin-1 values to UTF-8.
//   - Enforce the Package, Version and Architecture fields, optionally leniently.
//   - Compute the size, MD5, SHA1 and SHA256 of the file in a single pass.
//
// Source descriptions (.dsc):
//   - Unwrap clearsigned documents and optionally verify them against a keyring.
//   - Resolve listed files next to the document and report missing ones.
//   - Check every Files and Checksums-* digest and report corrections.
//
// Versioning:
//   - Implements the Debian version comparison algorithm, including epochs,
//     revisions and tilde ordering.
//   - Sort helpers and a version bumping utility.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html
package deb
