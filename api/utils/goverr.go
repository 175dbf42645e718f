// Copyright (c) 2025 The Agora developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package utils

import (
	"github.com/agora-dao/agora/gov"
)

// ConvertGovError maps engine errors onto http status codes. Unknown errors
// pass through and surface as 500.
func ConvertGovError(err error) error {
	if err == nil {
		return nil
	}
	if gov.Is(err, gov.ErrUnknownProposal) || gov.Is(err, gov.ErrUnknownParameter) {
		return NotFound(err)
	}
	switch gov.KindOf(err) {
	case gov.KindAuthorization:
		return Forbidden(err)
	case gov.KindEligibility, gov.KindBounds, gov.KindTiming, gov.KindExecution:
		return BadRequest(err)
	default:
		return err
	}
}
