// Package otp produces the numeric one-time codes delivered during phone
// verification.
//
// Codes are drawn uniformly over the digit alphabet from crypto/rand, so a
// code cannot be predicted from timing or from previously issued codes.
// [Static] exists for tests and demos that need a known code.
package otp
