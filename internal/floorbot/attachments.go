package floorbot

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/skytemple/swablu/internal/gateway"
)

const attachmentsTitle = "Invalid attachments."

// selection holds the attachments a request is built from.
type selection struct {
	floor   gateway.Attachment
	archive *gateway.Attachment
}

// selectAttachments accepts exactly one .xml file and at most one .zip file
// and rejects everything else. Extensions are compared case-insensitively.
func selectAttachments(attachments []gateway.Attachment) (selection, error) {
	var (
		sel      selection
		hasFloor bool
	)
	for i := range attachments {
		a := attachments[i]
		name := strings.ToLower(a.Filename)
		switch {
		case strings.HasSuffix(name, ".xml"):
			if hasFloor {
				return selection{}, &UserError{attachmentsTitle, "You attached multiple XML files. Please only attach one."}
			}
			sel.floor = a
			hasFloor = true
		case strings.HasSuffix(name, ".zip"):
			if sel.archive != nil {
				return selection{}, &UserError{attachmentsTitle, "You attached multiple ZIP files. Please only attach one."}
			}
			sel.archive = &a
		default:
			return selection{}, &UserError{attachmentsTitle, "Attach only one XML file and optionally one ZIP file."}
		}
	}
	if !hasFloor {
		return selection{}, &UserError{attachmentsTitle, "You did not attach a floor XML file. Please attach a floor XML file as well."}
	}
	return sel, nil
}

// checkContent sniffs downloaded attachments so that a renamed binary
// file is reported as such instead of as a parse error.
func checkContent(floor, archive []byte) error {
	if mt := mimetype.Detect(floor); !isText(mt) {
		return userErrorf("XML Error", "The floor XML you provided is not a text file (found %s).", mt.String())
	}
	if archive != nil {
		if mt := mimetype.Detect(archive); !inherits(mt, "application/zip") {
			return userErrorf("Invalid ZIP file", "The tileset you attached is not a ZIP file (found %s).", mt.String())
		}
	}
	return nil
}

func isText(mt *mimetype.MIME) bool {
	return inherits(mt, "text/plain") || inherits(mt, "text/xml")
}

func inherits(mt *mimetype.MIME, want string) bool {
	for m := mt; m != nil; m = m.Parent() {
		if m.Is(want) {
			return true
		}
	}
	return false
}
