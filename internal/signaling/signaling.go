// Package signaling exchanges external endpoints between the two operators
// over a short-lived WebSocket, as an alternative to copying them by hand.
// One side hosts a PIN-protected server; the other joins it by URL. The
// connection is closed as soon as both endpoints are known.
package signaling

// pinLength is the number of digits in a generated PIN.
const pinLength = 4
