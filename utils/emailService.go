package utils

import (
	"fmt"
	"log"

	"dfp/config"
	"dfp/database"
	"dfp/models"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendEmail delivers a single HTML email through SendGrid.
func SendEmail(toName, toEmail, subject, htmlBody string) error {
	if config.AppConfig.SendGridApiKey == "" {
		log.Printf("[EMAIL] SENDGRID_API_KEY not set, skipping email to %s (%s)", toEmail, subject)
		return nil
	}

	from := mail.NewEmail("DiasporaFund", config.AppConfig.EmailSender)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, "", getEmailTemplate(subject, htmlBody))

	client := sendgrid.NewSendClient(config.AppConfig.SendGridApiKey)
	resp, err := client.Send(message)
	if err != nil {
		log.Printf("[EMAIL] Error sending email to %s: %v", toEmail, err)
		return err
	}
	if resp.StatusCode >= 400 {
		log.Printf("[EMAIL] SendGrid rejected email to %s: %d %s", toEmail, resp.StatusCode, resp.Body)
		return fmt.Errorf("sendgrid rejected email: %d", resp.StatusCode)
	}
	return nil
}

// getEmailTemplate wraps body content in the platform layout
func getEmailTemplate(title string, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; }
			.header { background-color: #0B3D2E; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; letter-spacing: 1px; }
			.content { padding: 40px 30px; color: #1B1B1B; line-height: 1.6; }
			.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; }
			.info-box { background: #E8F5EE; padding: 15px; border-radius: 4px; border-left: 4px solid #D7B56D; margin: 20px 0; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header">
				<h1>DIASPORAFUND</h1>
			</div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">
				&copy; 2026 DiasporaFund. All rights reserved.<br>
				Investments carry risk. Please read each proposal carefully.
			</div>
		</div>
	</body>
	</html>
	`, title, bodyContent)
}

// --- Triggers ---

// SendInvestmentReceipt emails the investor after a payment settles.
func SendInvestmentReceipt(txn models.Transaction) {
	db := database.Database.Db

	var user models.User
	if err := db.Where("id = ?", txn.InvestorID).First(&user).Error; err != nil {
		log.Printf("[EMAIL] Receipt skipped, investor %d not found: %v", txn.InvestorID, err)
		return
	}
	var proposal models.Proposal
	if err := db.Where("id = ?", txn.ProposalID).First(&proposal).Error; err != nil {
		log.Printf("[EMAIL] Receipt skipped, proposal %d not found: %v", txn.ProposalID, err)
		return
	}

	body := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>Your investment has been confirmed. Thank you for backing <b>%s</b>.</p>
		<div class="info-box">
			Amount: <b>%.2f %s</b><br>
			Payment reference: %s
		</div>
		<p>You can follow this project from your portfolio dashboard at any time.</p>
	`, user.Name, proposal.Title, txn.Amount, txn.Currency, txn.StripePaymentIntentID)

	SendEmail(user.Name, user.Email, "Investment Confirmed", body)
}

// SendProposalApprovedEmail notifies the author that the proposal went live.
func SendProposalApprovedEmail(proposal models.Proposal) {
	var author models.User
	if err := database.Database.Db.Where("id = ?", proposal.AuthorID).First(&author).Error; err != nil {
		log.Printf("[EMAIL] Approval notice skipped, author %d not found: %v", proposal.AuthorID, err)
		return
	}

	body := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>Your proposal <b>%s</b> has been approved and is now open for investment.</p>
		<div class="info-box">
			Funding target: <b>%.2f %s</b>
		</div>
	`, author.Name, proposal.Title, proposal.Budget, proposal.Currency)

	SendEmail(author.Name, author.Email, "Proposal Approved", body)
}

// SendRefundNotice emails the investor after a refund is applied.
func SendRefundNotice(paymentIntentID string) {
	db := database.Database.Db

	var txn models.Transaction
	if err := db.Where("stripe_payment_intent_id = ?", paymentIntentID).First(&txn).Error; err != nil {
		return
	}
	var user models.User
	if err := db.Where("id = ?", txn.InvestorID).First(&user).Error; err != nil {
		return
	}

	body := fmt.Sprintf(`
		<p>Hi %s,</p>
		<p>Your payment of <b>%.2f %s</b> has been refunded. The amount should
		reach your payment method within a few business days.</p>
	`, user.Name, txn.Amount, txn.Currency)

	SendEmail(user.Name, user.Email, "Refund Processed", body)
}
