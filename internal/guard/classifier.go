package guard

import (
	"regexp"
	"unicode/utf8"

	"github.com/disgoorg/snowflake/v2"
)

// Class tells the tracker which bucket a message belongs to.
//
//go:generate go tool enumer -type=Class -trimprefix=Class
type Class int

const (
	// ClassIgnore marks messages that are never tracked.
	ClassIgnore Class = iota
	// ClassContent groups messages by their exact content.
	ClassContent
	// ClassLink counts invite links regardless of content.
	ClassLink
)

var (
	// inviteLinkPattern matches Discord server invites.
	inviteLinkPattern = regexp.MustCompile(`(?i)(discord\.gg|discord(app)?\.com/invite)/\S+`)
	// linkPattern matches any http(s) link.
	linkPattern = regexp.MustCompile(`https?://\S+`)
)

// Message is the part of a guild message the guard looks at.
type Message struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
	AuthorID  snowflake.ID
	Content   string
	IsSelf    bool // Sent by the bot itself
	IsAdmin   bool // Author holds an administrative override
}

// Ref returns the location of the message.
func (m *Message) Ref() MessageRef {
	return MessageRef{MessageID: m.MessageID, ChannelID: m.ChannelID}
}

// Rule classifies a message. The second return value is false when the rule does not apply.
type Rule func(msg *Message) (Class, bool)

// Classifier evaluates rules in order; the first rule that applies decides the class.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds the rule chain for the given settings.
func NewClassifier(minLength int, trackLinks bool) *Classifier {
	rules := []Rule{ExemptRule}
	if trackLinks {
		rules = append(rules, InviteLinkRule)
	}

	rules = append(rules, LinkRule, LengthRule(minLength))

	return &Classifier{rules: rules}
}

// NewClassifierWithRules builds a classifier from a custom rule chain.
func NewClassifierWithRules(rules ...Rule) *Classifier {
	return &Classifier{rules: rules}
}

// Classify returns the class of the first matching rule, or ClassIgnore.
func (c *Classifier) Classify(msg *Message) Class {
	for _, rule := range c.rules {
		if class, ok := rule(msg); ok {
			return class
		}
	}

	return ClassIgnore
}

// ExemptRule ignores the bot's own messages and administrators.
func ExemptRule(msg *Message) (Class, bool) {
	if msg.IsSelf || msg.IsAdmin {
		return ClassIgnore, true
	}

	return ClassIgnore, false
}

// InviteLinkRule routes invite links to the link counter.
func InviteLinkRule(msg *Message) (Class, bool) {
	if inviteLinkPattern.MatchString(msg.Content) {
		return ClassLink, true
	}

	return ClassIgnore, false
}

// LinkRule tracks any message containing a link by its content.
func LinkRule(msg *Message) (Class, bool) {
	if linkPattern.MatchString(msg.Content) {
		return ClassContent, true
	}

	return ClassIgnore, false
}

// LengthRule tracks messages that are at least minLength characters long.
func LengthRule(minLength int) Rule {
	return func(msg *Message) (Class, bool) {
		if utf8.RuneCountInString(msg.Content) >= minLength {
			return ClassContent, true
		}

		return ClassIgnore, false
	}
}
