// SPDX-License-Identifier: GPL-3.0-or-later

// Package config is documented on [Config] and [Load].
package config
