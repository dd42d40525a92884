package upload

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	stringutil "github.com/taxdesk/taxdesk/internal/util/strings"
	filevalidation "github.com/taxdesk/taxdesk/internal/validation"
)

// ValidationError lists what is wrong with one staged file.
// Nothing is sent while any staged file is invalid.
type ValidationError struct {
	FileID   string
	Name     string
	Messages []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, strings.Join(e.Messages, "; "))
}

// validateEntry returns the problems with e, or nil.
func validateEntry(e *entry, maxSize int64) []string {
	var problems []string

	if err := filevalidation.ValidateFilename(e.name); err != nil {
		problems = append(problems, err.Error())
	}

	if err := validation.Validate(e.folderID,
		validation.Required.Error("select a destination folder"),
	); err != nil {
		problems = append(problems, err.Error())
	}

	sizeRules := []validation.Rule{validation.Required.Error("file is empty")}
	if maxSize > 0 {
		sizeRules = append(sizeRules, validation.Max(maxSize).Error(
			fmt.Sprintf("file is %s, limit is %s", stringutil.FormatBytes(e.size), stringutil.FormatBytes(maxSize))))
	}
	if err := validation.Validate(e.size, sizeRules...); err != nil {
		problems = append(problems, err.Error())
	}

	return problems
}
