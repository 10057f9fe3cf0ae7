// Package reltime parses and resolves relative time expressions.
//
// A relative time is a base granularity followed by an ordered list of signed
// calendar offsets:
//
//	<BASE>[<sign><digits><unit>]*
//
//	BASE  NOW | SECOND | MINUTE | HOUR | DAY | WEEK | MONTH | YEAR
//	sign  + | -
//	unit  S | M | H | D | W | MO | Y
//
// Resolution snaps the reference instant down to the start of the base
// granularity and then applies each offset left to right. Month and year
// offsets clamp to the last day of the target month, so MONTH+1MO from
// January 31 lands on the last day of February.
//
// Text that does not start with a base token is parsed as an absolute
// timestamp using locale-neutral layouts. Absolute values resolve to
// themselves.
//
// Parsing is pure and a Resolver holds no mutable state; both are safe for
// concurrent use.
package reltime
