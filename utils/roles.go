package utils

import "dealrooms/models"

// roleRoomTypes is the single declarative role-isolation table. It replaces
// per-screen visibility switches: the Room Registry is its only consumer and
// applies it after retrieval, never trusting the client's view of its role.
var roleRoomTypes = map[models.Role][]models.RoomType{
	models.RoleFounder: {
		models.RoomTypeDeal, models.RoomTypeListing, models.RoomTypeIDO,
		models.RoomTypeCampaign, models.RoomTypeProposal, models.RoomTypeTeam,
	},
	models.RoleVC:         {models.RoomTypeDeal, models.RoomTypeOps},
	models.RoleExchange:   {models.RoomTypeListing, models.RoomTypeOps},
	models.RoleIDO:        {models.RoomTypeIDO, models.RoomTypeOps},
	models.RoleInfluencer: {models.RoomTypeCampaign},
	models.RoleAgency:     {models.RoomTypeProposal},
}

// AllowedRoomTypes reports whether a role may see rooms of the given type.
// Admins see everything; unknown roles see nothing.
func AllowedRoomTypes(role models.Role, roomType models.RoomType) bool {
	if role == models.RoleAdmin {
		return true
	}
	for _, t := range roleRoomTypes[role] {
		if t == roomType {
			return true
		}
	}
	return false
}
