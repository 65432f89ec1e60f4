package service

import (
	"context"

	"intake/internal/documents/models"
	id "intake/pkg/domain"
	dErrors "intake/pkg/domain-errors"
	"intake/pkg/requestcontext"
)

// Applicants may only touch their own application: the token subject must be
// the applicant ID. Reviewers see every application. A context without an
// identity is an internal caller and is not restricted.

func applicantActor(ctx context.Context) (requestcontext.Identity, bool) {
	actor, ok := requestcontext.Actor(ctx)
	if !ok || actor.IsReviewer() {
		return requestcontext.Identity{}, false
	}
	return actor, true
}

func authorizeApplicantID(ctx context.Context, applicantID id.ApplicantID) error {
	actor, ok := applicantActor(ctx)
	if !ok {
		return nil
	}
	if applicantID.String() != actor.Subject {
		return dErrors.New(dErrors.CodeForbidden, "application belongs to another applicant")
	}
	return nil
}

func authorizeApplication(ctx context.Context, app *models.Application) error {
	return authorizeApplicantID(ctx, app.Applicant.ID)
}

// authorizeApplicationID loads the application only when the caller is an applicant.
func authorizeApplicationID(ctx context.Context, store DocumentStore, appID id.ApplicationID) error {
	if _, ok := applicantActor(ctx); !ok {
		return nil
	}
	app, err := store.FindApplication(ctx, appID)
	if err != nil {
		return wrapStoreErr(err, "application not found")
	}
	return authorizeApplication(ctx, app)
}
