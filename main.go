package main

import (
	// Embed tzdata in binary so that lease expiry logging is correct on hosts
	// without a timezone database.
	_ "time/tzdata"

	"github.com/AdguardTeam/AdGuardDHCP/internal/cmd"
)

func main() {
	cmd.Main()
}
