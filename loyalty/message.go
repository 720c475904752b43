/*
message.go - Customer-facing confirmation text

PURPOSE:
  Builds the sentences returned with a scan or redemption and the bodies of
  claim notifications. Counts are always pluralized properly.
*/
package loyalty

import "fmt"

// scanMessage builds the confirmation shown to staff and customer.
//
//	plain:    "Stamp added! 4/9 stamps collected."
//	birthday: "Happy birthday! 2 stamps added. 6/9 stamps collected."
//	reward:   "Reward earned! 1 stamp carried over to the next card."
func scanMessage(r ScanResult, full int) string {
	prefix := ""
	if r.BirthdayBonus {
		prefix = "Happy birthday! "
	}

	if r.RewardEarned {
		return fmt.Sprintf("%sReward earned! %s carried over to the next card.",
			prefix, pluralStamps(r.OverflowStamps))
	}

	if r.BirthdayBonus {
		return fmt.Sprintf("%s%s added. %d/%d stamps collected.",
			prefix, pluralStamps(r.StampsAdded), r.CurrentStamps, full)
	}
	return fmt.Sprintf("Stamp added! %d/%d stamps collected.", r.CurrentStamps, full)
}

func redeemMessage(total int) string {
	if total == 1 {
		return "Reward redeemed! First free reward enjoyed."
	}
	return fmt.Sprintf("Reward redeemed! %d free rewards enjoyed so far.", total)
}

func pluralStamps(n int) string {
	if n == 1 {
		return "1 stamp"
	}
	return fmt.Sprintf("%d stamps", n)
}

// claimMessage is the notification body after a reward is claimed.
func claimMessage(available int) string {
	return fmt.Sprintf("%s left on your account.", pluralRewards(available))
}

func pluralRewards(n int) string {
	if n == 1 {
		return "1 reward"
	}
	return fmt.Sprintf("%d rewards", n)
}
