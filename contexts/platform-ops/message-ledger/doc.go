// Package messageledger records every inbound message per (tenant, message id)
// and guarantees that each one completes at most once.
//
// Records move pending -> processing -> completed, or through failed back to
// pending with exponential backoff until the attempt budget is spent and the
// record is dead-lettered. Every transition is a conditional write against
// the stored version, so the repository is the only coordination point
// between workers.
package messageledger
