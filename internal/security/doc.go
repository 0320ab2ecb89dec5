// Package security derives a posture report from engine settings. The
// report is informational; it never blocks a build.
package security
