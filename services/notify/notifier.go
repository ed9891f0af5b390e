package notify

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/trezcool/masomo-results/core"
	"github.com/trezcool/masomo-results/core/compilation"
)

// AdminNotifier emails the school admins when a compilation job finishes.
type AdminNotifier struct {
	mailSvc core.EmailService
	to      []mail.Address
	logger  core.Logger
}

var _ compilation.Notifier = (*AdminNotifier)(nil)

func NewAdminNotifier(mailSvc core.EmailService, conf *core.Config, logger core.Logger) *AdminNotifier {
	return &AdminNotifier{
		mailSvc: mailSvc,
		to:      conf.AdminAddresses(),
		logger:  logger,
	}
}

func (n *AdminNotifier) JobFinished(_ context.Context, job compilation.Job) error {
	if len(n.to) == 0 {
		n.logger.Debug(fmt.Sprintf("no admin to notify of job %s", job.ID))
		return nil
	}

	subject := fmt.Sprintf("Results of %s %s compiled", job.ClassID, job.SubjectID)
	if job.Status == compilation.JobFailed {
		subject = fmt.Sprintf("Compilation of %s %s failed", job.ClassID, job.SubjectID)
	}
	n.mailSvc.SendMessages(&core.EmailMessage{
		To:           n.to,
		Subject:      subject,
		TemplateName: "job_finished",
		TemplateData: job,
	})
	return nil
}
