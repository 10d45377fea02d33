package server

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hyperjump/quire/internal/domain"
	"github.com/hyperjump/quire/internal/models"
)

const (
	maxTitleLength       = 200
	maxLibraryNameLength = 64
)

var libraryNamePattern = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} _.-]*$`)

// invalid turns an ozzo error into a validation error.
func invalid(err error) error {
	if err == nil {
		return nil
	}
	return domain.Invalid("%v", err)
}

func validateCreateLibrary(req *models.CreateLibraryRequest) error {
	return invalid(validation.ValidateStruct(req,
		validation.Field(&req.Name,
			validation.Required,
			validation.Length(1, maxLibraryNameLength),
			validation.Match(libraryNamePattern).Error("must start with a letter or digit and contain only letters, digits, spaces, '_', '.' or '-'"),
		),
	))
}

func validateCreateDocument(req *models.CreateDocumentRequest) error {
	return invalid(validation.ValidateStruct(req,
		validation.Field(&req.Title, validation.Required, validation.Length(1, maxTitleLength)),
		validation.Field(&req.ParentID, validation.NilOrNotEmpty, validation.Min(int64(1))),
	))
}

func validateUpdateDocument(req *models.UpdateDocumentRequest) error {
	return invalid(validation.ValidateStruct(req,
		validation.Field(&req.ID, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.Title, validation.NilOrNotEmpty, validation.Length(1, maxTitleLength)),
	))
}

func validateUpdateParent(req *models.UpdateParentRequest) error {
	return invalid(validation.ValidateStruct(req,
		validation.Field(&req.ID, validation.Required, validation.Min(int64(1))),
		validation.Field(&req.ParentID, validation.NilOrNotEmpty, validation.Min(int64(1))),
	))
}
