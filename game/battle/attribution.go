package battle

// attributeDamageToRecentSkill credits a damage tick to the most recent skill
// invocation by avatarID. The upstream feed carries no correlation id, so
// recency is the only link between a tick and its skill. It reports whether
// an entry was found.
func attributeDamageToRecentSkill(history []SkillHistoryEntry, avatarID uint32, damage float64, damageType int) bool {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].AvatarID != avatarID {
			continue
		}
		history[i].DamageDetail = append(history[i].DamageDetail, DamageDetail{Damage: damage, DamageType: damageType})
		history[i].TotalDamage += damage
		return true
	}
	return false
}
