package voice

import (
	"encoding/xml"
)

// Verb is one instruction of a directive document.
type Verb interface {
	verb()
}

// Response is the directive document returned to the telephony provider
// (TwiML). Verbs run in order.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []Verb
}

type Say struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

// Gather listens for speech and posts the transcription to Action.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	Timeout       int      `xml:"timeout,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Prompts       []Say
}

type Hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

func (Say) verb()    {}
func (Gather) verb() {}
func (Hangup) verb() {}

func NewResponse() *Response { return &Response{} }

func (r *Response) Say(voice, text string) *Response {
	r.Verbs = append(r.Verbs, Say{Voice: voice, Text: text})
	return r
}

func (r *Response) Gather(g Gather) *Response {
	r.Verbs = append(r.Verbs, g)
	return r
}

func (r *Response) Hangup() *Response {
	r.Verbs = append(r.Verbs, Hangup{})
	return r
}

// SpeechGather returns a speech Gather that posts to action after speaking
// prompt. speechTimeout may be empty.
func SpeechGather(action string, timeout int, speechTimeout, voice, prompt string) Gather {
	return Gather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		Timeout:       timeout,
		SpeechTimeout: speechTimeout,
		Prompts:       []Say{{Voice: voice, Text: prompt}},
	}
}

// HangsUp reports whether the document ends the call.
func (r *Response) HangsUp() bool {
	for _, v := range r.Verbs {
		if _, ok := v.(Hangup); ok {
			return true
		}
	}
	return false
}

// Spoken returns every text the document speaks, nested prompts included,
// in order.
func (r *Response) Spoken() []string {
	var out []string
	for _, v := range r.Verbs {
		switch t := v.(type) {
		case Say:
			out = append(out, t.Text)
		case Gather:
			for _, p := range t.Prompts {
				out = append(out, p.Text)
			}
		}
	}
	return out
}

// Render serialises the document with the XML header.
func (r *Response) Render() ([]byte, error) {
	b, err := xml.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}
