package notify

import (
	"fmt"
	"strings"

	"eusotrip/internal/domain"
	"eusotrip/internal/eventbus"
)

// fanout translates one bus event into the in-app notifications it owes.
// Unknown or uninteresting events return nil.
func fanout(e eventbus.Event) []domain.Notification {
	switch e.Type {
	case eventbus.TypeLoadStatusChanged:
		sc, ok := e.Data.(eventbus.StatusChange)
		if !ok {
			return nil
		}
		return loadStatusNotes(sc)

	case eventbus.TypeLoadAssigned:
		le, ok := e.Data.(eventbus.LoadEvent)
		if !ok {
			return nil
		}
		return assignmentNotes(le.Load)

	case eventbus.TypeBidSubmitted:
		be, ok := e.Data.(eventbus.BidEvent)
		if !ok {
			return nil
		}
		return []domain.Notification{{
			UserID: be.Load.ShipperID,
			Type:   domain.NotifyBidUpdate,
			Title:  fmt.Sprintf("New bid on %s", be.Load.Ref),
			Body:   fmt.Sprintf("%s offered %s", be.Bid.CarrierID, dollars(be.Bid.AmountCents)),
			LoadID: be.Load.ID,
		}}

	case eventbus.TypeBidAccepted:
		be, ok := e.Data.(eventbus.BidEvent)
		if !ok {
			return nil
		}
		return []domain.Notification{{
			UserID: be.Bid.CarrierID,
			Type:   domain.NotifyBidUpdate,
			Title:  fmt.Sprintf("Bid accepted on %s", be.Load.Ref),
			Body:   fmt.Sprintf("Booked at %s", dollars(be.Bid.AmountCents)),
			LoadID: be.Load.ID,
		}}

	case eventbus.TypeComplianceAlert:
		ca, ok := e.Data.(eventbus.ComplianceAlert)
		if !ok {
			return nil
		}
		return []domain.Notification{{
			UserID: ca.SubjectID,
			Type:   complianceNoteType(ca.Kind),
			Title:  "Compliance",
			Body:   ca.Message,
		}}

	case eventbus.TypePaymentReceived:
		pe, ok := e.Data.(eventbus.PaymentEvent)
		if !ok {
			return nil
		}
		return []domain.Notification{{
			UserID: pe.Invoice.ShipperID,
			Type:   domain.NotifyPaymentReceived,
			Title:  fmt.Sprintf("Payment received on %s", pe.Invoice.Number),
			Body:   fmt.Sprintf("%s applied, %s remaining", dollars(pe.Payment.AmountCents), dollars(pe.Invoice.BalanceCents())),
			LoadID: pe.Invoice.LoadID,
		}}

	case eventbus.TypeAchievement:
		ae, ok := e.Data.(eventbus.AchievementEvent)
		if !ok {
			return nil
		}
		return []domain.Notification{{
			UserID: ae.DriverID,
			Type:   domain.NotifyAchievement,
			Title:  "Achievement unlocked",
			Body:   fmt.Sprintf("%s (+%d XP)", ae.AchievementID, ae.XPAward),
		}}
	}
	return nil
}

// loadStatusNotes tells everyone on the load. The actor already knows.
func loadStatusNotes(sc eventbus.StatusChange) []domain.Notification {
	l := sc.Load
	title := fmt.Sprintf("Load %s %s", l.Ref, humanStatus(l.Status))
	body := fmt.Sprintf("%s, %s to %s, %s", l.Origin.City, l.Origin.State, l.Dest.City, l.Dest.State)

	var out []domain.Notification
	for _, userID := range []string{l.ShipperID, l.CarrierID, l.DriverID} {
		if userID == "" || userID == sc.Actor {
			continue
		}
		out = append(out, domain.Notification{
			UserID: userID,
			Type:   domain.NotifyLoadUpdate,
			Title:  title,
			Body:   body,
			LoadID: l.ID,
		})
	}
	return out
}

func assignmentNotes(l domain.Load) []domain.Notification {
	var out []domain.Notification
	if l.ShipperID != "" {
		out = append(out, domain.Notification{
			UserID: l.ShipperID,
			Type:   domain.NotifyLoadUpdate,
			Title:  fmt.Sprintf("Load %s assigned", l.Ref),
			Body:   fmt.Sprintf("Carrier %s booked the load", l.CarrierID),
			LoadID: l.ID,
		})
	}
	if l.DriverID != "" {
		out = append(out, domain.Notification{
			UserID: l.DriverID,
			Type:   domain.NotifyLoadUpdate,
			Title:  fmt.Sprintf("New assignment: %s", l.Ref),
			Body:   fmt.Sprintf("Pickup %s, %s", l.Origin.City, l.Origin.State),
			LoadID: l.ID,
		})
	}
	return out
}

// complianceNoteType maps expiring credentials to the renewal call-to-action
// type; operational alerts keep the generic compliance type.
func complianceNoteType(kind string) domain.NotificationType {
	switch kind {
	case domain.DocCDL, domain.DocMedicalCard, domain.DocHazmatEndorse,
		domain.DocInsurance, domain.DocVehicleInspClass:
		return domain.NotifyDocumentRequired
	}
	return domain.NotifyComplianceAlert
}

// opsMessage renders the Telegram relay line for events the ops channel
// cares about. The bool reports whether the event qualifies.
func opsMessage(e eventbus.Event) (string, bool) {
	switch e.Type {
	case eventbus.TypeGeofenceEvent:
		ge, ok := e.Data.(eventbus.GeofenceEvent)
		if !ok || !ge.Entered || ge.Fence.Kind != domain.GeofenceRestricted {
			return "", false
		}
		msg := fmt.Sprintf("🚨 restricted zone entry: vehicle %s in %s", ge.Position.VehicleID, ge.Fence.Name)
		if ge.LoadID != "" {
			msg += " hauling " + ge.LoadID
		}
		return msg, true

	case eventbus.TypeComplianceAlert:
		ca, ok := e.Data.(eventbus.ComplianceAlert)
		if !ok || !ca.Critical {
			return "", false
		}
		return fmt.Sprintf("⚠️ compliance: %s (%s)", ca.Message, ca.SubjectID), true

	case eventbus.TypeHazmatIncident:
		he, ok := e.Data.(eventbus.HazmatEvent)
		if !ok {
			return "", false
		}
		msg := fmt.Sprintf("🚨 hazmat incident: UN%s guide %d", he.Incident.UNNumber, he.Incident.GuideNo)
		if he.Incident.Location != "" {
			msg += " at " + he.Incident.Location
		}
		return msg, true

	case eventbus.TypeJobFailed:
		jf, ok := e.Data.(eventbus.JobFailure)
		if !ok {
			return "", false
		}
		return fmt.Sprintf("⚠️ job %s failed: %s", jf.Job, jf.Error), true
	}
	return "", false
}

func humanStatus(s domain.LoadStatus) string {
	return strings.ReplaceAll(string(s), "_", " ")
}

// dollars renders cents for notification text.
func dollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
