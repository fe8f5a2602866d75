// Package control implements the out-of-band UDP control channel.
//
// The channel accepts short text datagrams. The only recognized command is
// the literal "shutdown" after trimming surrounding whitespace; every other
// payload is ignored. Nothing is ever sent back to the sender.
//
// [Send] is the matching client used by "devserve stop".
package control
