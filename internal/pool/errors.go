// SPDX-License-Identifier: GPL-3.0-or-later

package pool

import "errors"

var errEmptyPool = errors.New("attempt to iterate through an empty address pool")
