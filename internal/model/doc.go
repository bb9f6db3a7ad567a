// Package model defines the value types shared by the relay's storage,
// transport and scheduling layers.
//
// Items and configuration entries are append-only. Once stored they are
// never mutated; they leave the store only through explicit consumption
// after a successful send or through retention eviction.
package model
