// ABOUTME: Package documentation for the backend port
// ABOUTME: Describes how backends plug into the shared stream lifecycle
// Package backend defines the port every audio backend implements.
//
// A backend owns one audio stack. It resolves devices, reports capabilities and
// opens the OS transport for each stream activation; the stream lifecycle itself
// comes from package stream, so every backend exposes the same states, events
// and health semantics.
//
// Implementations live in the subprocess and native subpackages. Registry is a
// helper both use to track open streams for Shutdown and BufferHealth.
package backend
