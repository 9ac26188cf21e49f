// Package campaign implements the campaign generation pipeline.
//
// The service coordinates one request end to end: analyze the question when
// no targeting plan is supplied, extract tags, compose control and variant
// messages, configure the A/B experiment, forecast performance and, on demand,
// hand the campaign to the delivery service. It holds no per-request state and
// is safe for concurrent use; each request gets its own random source.
package campaign
