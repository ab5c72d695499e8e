package helpers

import "strings"

// Chunk output is assembled from many small pieces of module text. This
// measures everything first and then allocates the output once.
type Joiner struct {
	strings  []string
	length   int
	lastByte byte
}

func (j *Joiner) AddString(data string) {
	if len(data) > 0 {
		j.lastByte = data[len(data)-1]
		j.strings = append(j.strings, data)
		j.length += len(data)
	}
}

// Adds each line of the text prefixed with the indent. Empty lines stay empty.
func (j *Joiner) AddIndented(data string, indent string) {
	for _, line := range strings.SplitAfter(data, "\n") {
		if line == "" {
			continue
		}
		if line != "\n" {
			j.AddString(indent)
		}
		j.AddString(line)
	}
}

func (j *Joiner) Length() int {
	return j.length
}

func (j *Joiner) EnsureNewlineAtEnd() {
	if j.length > 0 && j.lastByte != '\n' {
		j.AddString("\n")
	}
}

func (j *Joiner) Done() string {
	sb := strings.Builder{}
	sb.Grow(j.length)
	for _, data := range j.strings {
		sb.WriteString(data)
	}
	return sb.String()
}
