// Package connection implements the reconnect policy used by HAP
// transports: after a connection loss, retry once immediately, then after
// a fixed delay, for a bounded number of attempts. Only one reconnect runs
// at a time; concurrent callers share its outcome.
package connection
