// Package timer provides a periodic scheduler that survives host sleep.
//
// A Timer fires its subscribers once per interval, sequentially and in
// subscription order. It pauses when the power monitor reports Suspend and
// resumes on Resume, honoring whichever is later: the deadline it had before
// sleeping or a short grace period. After each round the next wait is
// shortened by the time the round took, but never below a tenth of the
// interval, so an overrunning round cannot make the timer spin.
package timer
