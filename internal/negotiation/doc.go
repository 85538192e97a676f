// Package negotiation lets a module claim a unique instance number within
// its type with no central allocator.
//
// # Algorithm
//
//  1. Sleep a random start delay so modules powered on together diverge.
//  2. For candidate 1, 2, ... MaxInstance:
//     send PROBE(type, candidate) to the type's sub-channel, listen for
//     TAKEN until the round timeout (plus jitter); repeat for three rounds
//     and one confirmation probe. Any TAKEN rejects the candidate, which
//     is followed by a backoff that grows with the candidate index.
//  3. If every candidate is rejected, use the fallback instance. Two modules
//     can then share an address; this is a known limitation.
//  4. Set the port's local address and send REGISTER to the timer.
//
// Listening is a poll-and-sleep loop over the bus port rather than a
// blocking receive, so replies are seen as soon as they are queued.
//
// Probes carry a random 16-bit nonce. When two negotiators probe the same
// candidate at the same time, the one holding the higher nonce yields on
// seeing the other's probe; an equal nonce is the module's own echo.
//
// Modules that already hold an instance use Answer to reply to probes.
// The reply must be handled before other pending traffic.
//
// The guarantee is best effort. Lost frames can still let two modules
// claim the same candidate; the repeated rounds only make it rare.
package negotiation
