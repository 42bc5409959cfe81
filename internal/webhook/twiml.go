package webhook

import (
	"bytes"
	"encoding/xml"
)

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message"`
}

// TwiML renders the synchronous webhook reply envelope with the body
// entity-escaped.
func TwiML(message string) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	// Marshalling a fixed struct cannot fail.
	out, _ := xml.Marshal(twimlResponse{Message: message})
	buf.Write(out)
	return buf.Bytes()
}
