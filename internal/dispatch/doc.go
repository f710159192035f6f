// Package dispatch executes one claimed execution against its subject.
//
// The dispatcher never retries: a failed dispatch is recorded and the next
// naturally-scheduled occurrence is the retry. That keeps planned timestamps
// unique per schedule and the execution history an honest audit trail. Every
// outbound call is bounded by a timeout (a timeout reads as the device being
// unreachable) and by a process-wide command rate limit.
package dispatch
