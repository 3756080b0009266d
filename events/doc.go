// Package events publishes one change notification per applied identity
// mutation. Events of one entity share an ordering group, the entity's
// "<hash key>-<range key>", so consumers observe them in emission order.
//
// Implementations:
//   - sqs: SQS FIFO queue, one message group per ordering group
//   - Recorder: in-memory, for tests and dry runs
package events
