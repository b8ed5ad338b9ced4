package demochat

import "strings"

type cannedReply struct {
	match string
	text  string
}

var cannedReplies = []cannedReply{
	{"tech stack", "React + TypeScript on the frontend, mostly. I'm comfortable with C++ for low-level stuff, Python for scripting, and I've been getting into Cloudflare Workers lately. I like keeping things simple and fast."},
	{"what do you do", "I'm a software engineer. I build web apps, mess around with systems programming, and occasionally do competitive programming when I feel like torturing myself."},
	{"yourself", "I enjoy building things that look good and work even better. I've interned at a bank, taught coding, and I'm always picking up something new."},
	{"open to work", "Yes! I'm open to work. The contact form on the site is the quickest way to reach me."},
	{"projects", "A portfolio site, a job scheduler in C++, a small ML library from scratch and a pile of algorithm write-ups."},
}

const fallbackReply = "Good question. I don't have a canned answer for that one, so reach out directly and I'll get back to you."

// replyFor picks a canned reply for the latest user message.
func replyFor(msg string) string {
	lower := strings.ToLower(msg)
	for _, r := range cannedReplies {
		if strings.Contains(lower, r.match) {
			return r.text
		}
	}
	return fallbackReply
}

// chunkWords splits s into pieces of n words each, keeping the separating
// spaces so the pieces concatenate back to s.
func chunkWords(s string, n int) []string {
	if n <= 0 {
		n = 1
	}
	var chunks []string
	words := 0
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] != ' ' {
			continue
		}
		words++
		if words == n {
			chunks = append(chunks, s[start:i+1])
			start = i + 1
			words = 0
		}
	}
	if start < len(s) {
		chunks = append(chunks, s[start:])
	}
	return chunks
}
