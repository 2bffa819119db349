package domain

import (
	"fmt"
	"time"
)

func ActivationMessage(company Company, fullName, packageName string, expiry time.Time) string {
	return fmt.Sprintf(
		"Dear %s, your %s internet package is now active until %s. Thank you for choosing %s.",
		fullName, packageName, expiry.Format("02 Jan 2006"), company.Name,
	)
}

func SuspensionMessage(balance int64) string {
	return fmt.Sprintf(
		"Your internet has been suspended due to unpaid balance of KES %d. Please pay to restore service.",
		balance,
	)
}

func RestorationMessage() string {
	return "Your internet service has been restored. Thank you for your payment."
}

func UpgradeMessage(packageName string) string {
	return fmt.Sprintf(
		"Your internet package has been upgraded to %s. Enjoy faster speeds.",
		packageName,
	)
}
