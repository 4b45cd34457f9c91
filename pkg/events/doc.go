// Package events implements a generic, non-blocking fan-out broker.
//
// Each Broker[T] owns one payload type: the supervisor uses one for log
// lines, one for install progress, and the registry uses one for instance
// lifecycle notifications. Publish never blocks on a subscriber — a full
// subscriber buffer just drops the payload.
package events
