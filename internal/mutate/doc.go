// Package mutate applies Mongo-style update operators to documents as
// a pure, side-effect-free transformation.
package mutate
