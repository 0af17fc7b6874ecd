// `hubbot` is the dispatch core shared by a family of XMPP chat bots.
//
// A bot logs into an XMPP server, joins one or more multi-user chatrooms
// and reacts to messages by walking small handler objects. This package
// provides the pieces that are common to every bot front-end:
//
//   - the `Handler` contract and the `Bind` chain which walks handlers in
//     registration order until one of them claims the message,
//   - the `CommandListener` which recognises a command word and delegates
//     the rest of the message to a registered `Command`,
//   - the `Router` which maps (sender, message type) pairs onto chains,
//     with an exact → bare → wildcard fallback, and which diffs the room
//     list on reload so the bot joins and leaves rooms as configuration
//     changes,
//   - the `RoomQueue`, a bounded per-room queue with a single consumer
//     that serialises deferred task execution inside a room,
//   - the `ErrorSink`, which turns handler failures into chat-delivered
//     diagnostics instead of crashing the process.
//
// ## Handlers
//
// Two handler conventions existed across bot generations: handlers which
// return a boolean "stop the chain" result, and handlers which return a
// batch of deferred tasks for later execution. Both are unified behind
// `Verdict`, which carries a stop flag and zero or more `Task`s. The
// adapters `HandlerFunc` and `TaskHandlerFunc` lift plain functions onto
// either convention.
//
// ## Concurrency
//
// Message intake is synchronous and cheap: the chain's analysis phase runs
// on the delivery goroutine and only collects tasks. Actual task execution
// is deferred onto the room's `RoomQueue` consumer, which awaits each task
// under an individual timeout. Batches are executed FIFO and a batch that
// does not fit into the queue is dropped whole; the producer never blocks.
//
// The XMPP protocol stack itself is not part of this package. The core
// talks to it through the narrow `Client` interface; `SessionClient`
// adapts a `mellium.im/xmpp` session onto it.
package hubbot
