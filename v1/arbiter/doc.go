// Package arbiter admits lock instructions one at a time.
//
// Two mechanisms cooperate. A Guard gives try-acquire exclusivity: the
// submitter takes it and the coordinator releases it once the instruction
// has been fully processed. A capacity-1 queue carries the instruction;
// right after a real enqueue the submitter also sends a Filler, which lands
// in the slot the moment the coordinator dequeues, so the queue reads full
// for the whole cycle. Late submitters fail fast with ErrBusy and decide for
// themselves whether to retry.
//
// Instructions are totally ordered by acceptance: the first submitter to
// take the guard wins, everyone else observes ErrBusy synchronously.
package arbiter
