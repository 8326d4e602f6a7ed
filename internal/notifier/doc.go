// Package notifier delivers short operator messages about sync runs.
//
// A failed run (and, if configured, a successful one) produces a one-line
// summary that is sent through a Sender. The Telegram sender is the only
// built-in transport.
//
// # Delivery
//
// Sends are synchronous: a one-shot "sync" must not exit before its failure
// report is out. Each send is rate limited, retried with jittered
// exponential backoff and deduplicated over a short window so that a
// crash-looping service does not flood the chat.
package notifier
