package command

// Permission gates every /track subcommand.
const Permission = "track.manage"

// Sender is whoever issued a command: the console, an in-game player or a
// Telegram owner. Reply text may carry § color codes; senders that cannot
// render them strip them.
type Sender interface {
	Name() string
	Source() string
	HasPermission(perm string) bool
	Reply(msg string)
}

// Recorder is a Sender that keeps replies, for tests and one-shot calls.
type Recorder struct {
	User    string
	From    string
	Allow   bool
	Replies []string
}

func (r *Recorder) Name() string                   { return r.User }
func (r *Recorder) Source() string                 { return r.From }
func (r *Recorder) HasPermission(perm string) bool { return r.Allow }
func (r *Recorder) Reply(msg string)               { r.Replies = append(r.Replies, msg) }
